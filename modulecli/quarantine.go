package modulecli

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/moduledelivery/audit"
	"github.com/byteness/moduledelivery/logging"
	"github.com/byteness/moduledelivery/quarantine"
)

// QuarantineListCommandInput holds the quarantine-list command's flags.
type QuarantineListCommandInput struct {
	Root string
}

// ConfigureQuarantineListCommand registers `moduleinstall quarantine-list`.
func ConfigureQuarantineListCommand(app *kingpin.Application) {
	input := QuarantineListCommandInput{}

	cmd := app.Command("quarantine-list", "List modules currently in quarantine")
	cmd.Flag("root", "Install root").Required().StringVar(&input.Root)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := QuarantineListCommand(input)
		app.FatalIfError(err, "quarantine-list")
		return nil
	})
}

// QuarantineListCommand prints every quarantined module's entry.
func QuarantineListCommand(input QuarantineListCommandInput) error {
	sink := audit.NewSink(logging.NewNopLogger())
	defer sink.Close()

	mgr := quarantine.New(input.Root, sink)
	for _, entry := range mgr.List() {
		fmt.Printf("%s\treason=%q\tquarantined_at=%s\n", entry.ModuleID, entry.Reason, entry.QuarantinedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

// QuarantineReleaseCommandInput holds the quarantine-release command's flags.
type QuarantineReleaseCommandInput struct {
	Root     string
	ModuleID string
}

// ConfigureQuarantineReleaseCommand registers `moduleinstall quarantine-release`.
func ConfigureQuarantineReleaseCommand(app *kingpin.Application) {
	input := QuarantineReleaseCommandInput{}

	cmd := app.Command("quarantine-release", "Release a quarantined module back to its original path")
	cmd.Flag("root", "Install root").Required().StringVar(&input.Root)
	cmd.Arg("module-id", "The quarantined module id").Required().StringVar(&input.ModuleID)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := QuarantineReleaseCommand(input)
		app.FatalIfError(err, "quarantine-release")
		return nil
	})
}

// QuarantineReleaseCommand releases one module from quarantine.
func QuarantineReleaseCommand(input QuarantineReleaseCommandInput) error {
	sink := audit.NewSink(logging.NewNopLogger())
	defer sink.Close()

	mgr := quarantine.New(input.Root, sink)
	return mgr.Release(input.ModuleID)
}
