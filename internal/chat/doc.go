// Package chat is the session object a front end holds for one running chat.
//
// An App is built with New, prepared with Start, used through its operations
// and torn down with Close:
//
//	app := chat.New(backend.NewClient(url), chat.WithConfirmer(prompt))
//	if err := app.Start(ctx); err != nil {
//	    // the thread list is unavailable; chatting still works
//	}
//	defer app.Close()
//
//	app.Subscribe(func(v chat.View) { draw(v) })
//	app.Submit(ctx, "hello")
//
// View is the rendering boundary: plain values with no behavior, produced
// after every change to the conversation. The App owns no rendering.
package chat
