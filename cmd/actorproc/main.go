// Command actorproc is the subprocess entry point a nursery re-execs into
// (spec §6 spawn interface). It binds a listen socket, registers with the
// arbiter, connects back to its parent, and serves RPCs against a registry
// of demo modules — a real host application typically vendors this same
// flag surface against its own rpcreg.Registry via actorproc.Host directly,
// overriding nursery.Config.SpawnBinary to point at its own binary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/nurseryrun/nursery/actorproc"
	"github.com/nurseryrun/nursery/rpcreg"
)

func main() {
	app := &cli.App{
		Name:  "actorproc",
		Usage: "run as a spawned actor process",
		Commands: []*cli.Command{
			command(demoRegistry()),
		},
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("actorproc exited with error", "err", err)
		os.Exit(1)
	}
}

func command(registry *rpcreg.Registry) *cli.Command {
	return &cli.Command{
		Name:  "actorproc",
		Usage: "boot an actor process bound to --bind, registered with --arbiter",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Required: true},
			&cli.StringFlag{Name: "parent"},
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "instance"},
			&cli.StringFlag{Name: "arbiter"},
			&cli.StringFlag{Name: "modules"},
			&cli.StringFlag{Name: "loglevel", Value: "info"},
			&cli.StringFlag{Name: "statespace", Value: "{}"},
			&cli.BoolFlag{Name: "discovery"},
		},
		Action: func(c *cli.Context) error {
			setLogLevel(c.String("loglevel"))

			var statespace map[string]any
			if err := json.Unmarshal([]byte(c.String("statespace")), &statespace); err != nil {
				return fmt.Errorf("actorproc: parse --statespace: %w", err)
			}

			var modules []string
			if m := c.String("modules"); m != "" {
				modules = strings.Split(m, ",")
			}

			host, err := actorproc.New(actorproc.Config{
				Name:        c.String("name"),
				InstanceID:  c.String("instance"),
				BindAddr:    c.String("bind"),
				ArbiterAddr: c.String("arbiter"),
				ParentAddr:  c.String("parent"),
				RPCModules:  modules,
				StateSpace:  statespace,
				Discovery:   c.Bool("discovery"),
			}, registry)
			if err != nil {
				return err
			}

			slog.Info("actorproc starting", "name", c.String("name"), "bind", c.String("bind"))
			return host.Serve(context.Background())
		},
	}
}

func setLogLevel(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// demoRegistry registers the minimal set of RPC targets exercised by the
// peer-discovery scenario (spec §8 S2): a "hi" function in module "demo"
// that replies "Hi my name is <self_name>", taking the name from the
// caller-supplied self_name kwarg. The handler does not know the actor's own
// name, so an empty reply name results when the caller omits self_name.
func demoRegistry() *rpcreg.Registry {
	r := rpcreg.NewRegistry()
	r.RegisterFunc("demo", "hi", func(call *rpcreg.Call) (any, error) {
		name, _ := call.Kwargs["self_name"].(string)
		return fmt.Sprintf("Hi my name is %s", name), nil
	})
	return r
}
