// Package auth provides bearer-token authentication for the development backend.
//
// Tokens are HS256-signed JWTs whose "sub" claim names the caller:
//
//	v := auth.NewJWTVerifier([]byte(secret))
//	tok, _ := v.Generate("alice", 24*time.Hour)
//	handler = auth.Middleware(v, logger)(handler)
//
// Handlers behind Middleware read the caller with PrincipalFrom.
//
// Clients that only hold a token use ExpiresAt to warn about an expired
// credential before the server rejects it. It does not check the signature.
package auth
