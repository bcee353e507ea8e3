package main

import "github.com/playbookrun/controller/internal/resume"

// app bundles the resume trigger's webhook server; the trigger is reached only through the
// server's webhook route.
type app struct {
	Server *resume.Server
}
