package worker

import (
	"github.com/oshokin/update-service/internal/certcheck"
	"github.com/oshokin/update-service/internal/config"
	"github.com/oshokin/update-service/internal/pathcheck"
	"github.com/oshokin/update-service/internal/process"
	"github.com/oshokin/update-service/internal/repository/registration"
	"github.com/oshokin/update-service/internal/scm"
	"github.com/oshokin/update-service/internal/service/executor"
	"github.com/oshokin/update-service/internal/service/lifecycle"
	"github.com/oshokin/update-service/internal/staging"
	"github.com/oshokin/update-service/internal/trust"
)

// Components is the assembled update service.
type Components struct {
	Registrations *registration.Store
	AllowList     *certcheck.Checker
	Lifecycle     *lifecycle.Manager
	Executor      *executor.Executor
}

// Host are the host-specific ports Wire builds on. Nil fields use the
// operating system.
type Host struct {
	Hive      registration.Hive
	Connector scm.Connector
	Paths     executor.PathValidator
	Trust     trust.Inspector
	Signers   certcheck.Inspector
	Runner    process.Runner
	Lifecycle lifecycle.Deps
}

// Wire assembles the service for the worker binary at executable.
func Wire(cfg *config.Config, executable string, host Host) *Components {
	if host.Hive == nil {
		host.Hive = registration.NewLocalMachine()
	}

	if host.Connector == nil {
		host.Connector = scm.NewConnector()
	}

	if host.Trust == nil {
		host.Trust = trust.NewInspector()
	}

	if host.Signers == nil {
		host.Signers = certcheck.NewInspector()
	}

	if host.Runner == nil {
		host.Runner = process.NewRunner()
	}

	if host.Paths == nil {
		host.Paths = pathcheck.NewOSValidator()
	}

	store := registration.NewStore(host.Hive, cfg.RegistrationRoot)
	checker := certcheck.NewChecker(host.Signers, store)

	deps := host.Lifecycle
	if deps.Executable == nil {
		deps.Executable = func() (string, error) { return executable, nil }
	}

	deps.Connector = host.Connector
	deps.Runner = host.Runner
	deps.AllowList = checker

	manager := lifecycle.New(cfg, deps)

	return &Components{
		Registrations: store,
		AllowList:     checker,
		Lifecycle:     manager,
		Executor: executor.New(cfg, executor.Deps{
			Paths:         host.Paths,
			Registrations: store,
			Gate:          trust.NewGate(host.Trust, checker),
			Stager:        staging.NewStager(executable),
			Runner:        host.Runner,
			Upgrader:      manager,
		}),
	}
}
