package main

import "github.com/playbookrun/controller/internal/controller"

// app bundles everything main needs to run the scheduler loop and its admin surface.
type app struct {
	Controller *controller.Controller
	Admin      *controller.AdminServer
}
