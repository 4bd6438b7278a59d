package engine_test

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/actions"
	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/engine"
	"github.com/openfroyo/froyo-setup/pkg/formatters"
	"github.com/openfroyo/froyo-setup/pkg/mapping"
	"github.com/openfroyo/froyo-setup/pkg/template"
)

// Example_run builds and executes a queue for a small setup.
func Example_run() {
	content, err := config.DecodeJSON([]byte(`{
		"_shared": {"note": "not a group"},
		"greet": {
			"steps": ["print"],
			"print": "hello ${name|world}"
		}
	}`))
	if err != nil {
		fmt.Println(err)
		return
	}

	steps, err := mapping.Default()
	if err != nil {
		fmt.Println(err)
		return
	}

	logger := zerolog.Nop()
	orch := engine.New(engine.Options{
		Steps:    steps,
		Resolver: template.New(formatters.NewRegistry(formatters.Builtin()), logger),
		Actions:  actions.DefaultRegistry(actions.Options{Stdout: os.Stdout, Logger: logger}),
		Input:    strings.NewReader("y\n"),
		Output:   os.Stdout,
		Logger:   logger,
	})

	setup := config.NewSetup("example.json", content.Mapping())
	result, err := orch.Run(context.Background(), setup, engine.RunParams{
		Payload: template.Payload{"name": config.String("froyo")},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(result.Status, result.Summary.Succeeded)

	// Output:
	//
	// Process queue? (y/n)
	// hello froyo
	// succeeded 1
}

// ExampleErrorCode shows how callers branch on the code of a fatal error.
func ExampleErrorCode() {
	err := engine.NewFatalError("config 'install' not found", nil).
		WithCode(engine.ErrCodeConfigNotFound).
		WithGroup("web").
		WithStep("install")

	fmt.Println(err)
	fmt.Println(engine.ErrorCode(err), engine.ExitCode(err))

	// Output:
	// [fatal] config 'install' not found (step=web.install)
	// CONFIG_NOT_FOUND 1
}
