// Package patchwork blends deterministic Go code with LLM-agent reasoning.
//
// A Patchwork wraps a connection to an agent (see the acp subpackage) and
// hands out think blocks: builder-composed prompts interleaved with typed
// tools the agent may invoke during the session. Running a think block
// drives one session to termination and yields exactly one structured
// result, decoded into the caller's output type.
//
//	pw := patchwork.New(conn)
//
//	name := "Alice"
//	greeting, err := patchwork.Think[string](pw).
//		Text("Say hello to").
//		Display(name).
//		Text("in a friendly way.").
//		Run(ctx)
package patchwork

import (
	"os"

	"github.com/patchwork-ai/patchwork-go/acp"
	"github.com/rs/zerolog"
)

// Patchwork is the entry point for think blocks. It holds a reference to the
// agent connection but never owns it; closing the connection is the
// responsibility of whoever created it.
type Patchwork struct {
	conn       acp.Connection
	logger     zerolog.Logger
	workingDir string
	serverName string
}

// Option configures a Patchwork.
type Option func(*Patchwork)

// WithLogger sets the logger used by think blocks. The default discards
// everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Patchwork) {
		p.logger = logger
	}
}

// WithWorkingDir sets the working directory that sessions are scoped to.
// The default is the process working directory, falling back to "/".
func WithWorkingDir(dir string) Option {
	return func(p *Patchwork) {
		p.workingDir = dir
	}
}

// WithServerName sets the name the tool server announces to the agent.
func WithServerName(name string) Option {
	return func(p *Patchwork) {
		p.serverName = name
	}
}

// New creates a Patchwork over the given agent connection.
func New(conn acp.Connection, opts ...Option) *Patchwork {
	p := &Patchwork{
		conn:       conn,
		logger:     zerolog.Nop(),
		serverName: "patchwork",
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "/"
		}
		p.workingDir = wd
	}
	return p
}

// Think starts building a think block whose result decodes into Output.
// Output must be a JSON-decodable type; its schema is derived by reflection
// and shown to the agent through the completion tool.
//
// Think is a function rather than a method because Go methods cannot
// introduce type parameters.
func Think[Output any](p *Patchwork) *ThinkBuilder[Output] {
	return newThinkBuilder[Output](p)
}
