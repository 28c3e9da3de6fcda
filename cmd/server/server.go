package main

import (
	"context"
	"net"
	"net/http"
)

// newHTTPServer cancels the context of every in-flight request once Shutdown
// starts, so open event streams return instead of holding the server open.
func newHTTPServer(addr string, h http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:        addr,
		Handler:     h,
		BaseContext: func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
