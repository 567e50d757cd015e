// Package dashboard provides the embedded inspector page for cellstore.
//
// The page lists registered events and subscriptions, shows the current
// state, lets an operator dispatch events, and follows live subscription
// values over a websocket. It is compiled into the binary so a served store
// needs no external asset files.
package dashboard

import "embed"

// Assets holds the inspector page:
//
//	assets/
//	  index.html    - inspector with inline CSS and JavaScript
//
// The server renders the "{{.Title}}" placeholder in index.html before
// serving it at "/".
//
//go:embed assets/*
var Assets embed.FS
