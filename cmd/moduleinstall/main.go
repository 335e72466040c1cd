package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/moduledelivery/modulecli"
)

// Version is provided at compile time.
var Version = "dev"

func main() {
	app := kingpin.New("moduleinstall", "Secure client-side module delivery pipeline")
	app.Version(Version)

	modulecli.ConfigureInstallCommand(app)
	modulecli.ConfigureQuarantineListCommand(app)
	modulecli.ConfigureQuarantineReleaseCommand(app)
	modulecli.ConfigureSweepCommand(app)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
