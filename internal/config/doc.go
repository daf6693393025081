// Package config handles configuration loading for coven-chat.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. A missing default file is not an error: LoadOrDefault falls back
// to Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the -config flag
//  2. Path from COVEN_CHAT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven/chat.yaml
//  4. ~/.config/coven/chat.yaml
//
// Files ending in .toml are decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  token: "${COVEN_TOKEN}"
//
// # Configuration Sections
//
//	backend:
//	  url: "http://localhost:8000"
//	  token_file: "~/.config/coven/token"
//	  request_timeout: "30s"   # list/history/delete only
//
//	chat:
//	  suggestions:
//	    - "Explain quantum computing simply"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	devserver:
//	  addr: "127.0.0.1:8000"
//	  database: ""          # empty keeps threads in memory
//	  jwt_secret: ""        # set to require bearer tokens
//	  chunk_delay: "20ms"
package config
