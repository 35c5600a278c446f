package main

import "time"

// Flag structs decouple cobra from command logic for testing.

type ServeFlags struct {
	ConfigPath    string
	BaseDir       string
	Source        string
	MetricsListen string
}

type PublishFlags struct {
	BaseDir     string
	RunID       string
	Port        int
	UserDataDir string
	Attempts    int
	Interval    time.Duration
}

type TailFlags struct {
	ConfigPath string
	BaseDir    string
	Count      int
}

type SweepFlags struct {
	BaseDir string
	MaxAge  time.Duration
}

type EndpointFlags struct {
	BaseDir string
	RunID   string
}
