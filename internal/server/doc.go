// Package server is the network face of tinyretro.
//
// A Session is created for every websocket on /ws. It first receives the full
// board, then joins the Hub, which forwards every later snapshot published by
// the store. Inbound frames are decoded into board actions and applied through
// the store, so every session sees the same sequence of boards. Slow sessions
// lose their backlog rather than holding anyone else up.
//
// The package also serves /healthz, /board, a liveness string on / and a
// small test page on /test.
package server
