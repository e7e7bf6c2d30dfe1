// Command meetscribe records meetings and keeps a live summary.
package main

import (
	"os"

	"github.com/GriffinCanCode/meetscribe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
