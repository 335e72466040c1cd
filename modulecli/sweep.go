package modulecli

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/moduledelivery/audit"
	"github.com/byteness/moduledelivery/integrity"
	"github.com/byteness/moduledelivery/logging"
)

// SweepCommandInput holds the integrity-sweep command's flags.
type SweepCommandInput struct {
	Root string
}

// ConfigureSweepCommand registers `moduleinstall integrity-sweep`.
func ConfigureSweepCommand(app *kingpin.Application) {
	input := SweepCommandInput{}

	cmd := app.Command("integrity-sweep", "Run IntegrityValidator's periodic sweep over every installed module")
	cmd.Flag("root", "Install root").Required().StringVar(&input.Root)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := SweepCommand(input)
		app.FatalIfError(err, "integrity-sweep")
		return nil
	})
}

// SweepCommand walks <root>/Modules/*/* and reports any module whose
// installed tree fails integrity validation. Failures are reported, not
// acted on (spec §4.7: "a separate policy decides").
func SweepCommand(input SweepCommandInput) error {
	sink := audit.NewSink(logging.NewNopLogger())
	defer sink.Close()

	v := integrity.New(sink)
	results := v.PeriodicSweep(input.Root)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("FAIL\t%s\t%v\n", r.ModulePath, r.Err)
		} else {
			fmt.Printf("OK\t%s\n", r.ModulePath)
		}
	}
	fmt.Printf("%d modules checked, %d failed\n", len(results), failed)
	return nil
}
