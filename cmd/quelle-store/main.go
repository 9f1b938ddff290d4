// Command quelle-store is a thin operator CLI over the store subsystem: a
// worked example exercising CachedStore, StoreManager, and Registry end to
// end, not the package's primary surface (that's the library API).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nacht-org/quelle-store/config"
	"github.com/nacht-org/quelle-store/internal/qcontext"
	"github.com/nacht-org/quelle-store/registry"
	"github.com/nacht-org/quelle-store/storemanager"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "quelle-store:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: quelle-store <search|install|uninstall|update|health-check|registry-gc> ...")
	}

	log := logrus.New()
	ctx := qcontext.WithLogger(context.Background(), logrus.NewEntry(log))

	opts := config.GlobalOptions{
		InstallDir:   defaultInstallDir(),
		RegistryPath: defaultRegistryPath(),
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	reg := registry.New(opts.RegistryPath)
	mgr := storemanager.New(opts.InstallDir, reg)

	switch args[0] {
	case "health-check":
		return runHealthCheck(ctx, mgr)
	case "search":
		if len(args) < 2 {
			return fmt.Errorf("usage: quelle-store search <text>")
		}
		return runSearch(ctx, mgr, args[1])
	case "registry-gc":
		return runRegistryGC(reg, opts.InstallDir+"/extensions")
	case "install", "uninstall", "update":
		return fmt.Errorf("%s requires a configured store set; wire one via config.StoreConfig and storemanager.Manager.AddStore in an embedding program", args[0])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func defaultInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quelle/extensions"
	}
	return home + "/.quelle/extensions"
}

func defaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quelle/registry.json"
	}
	return home + "/.quelle/registry.json"
}
