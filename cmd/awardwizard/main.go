// Command awardwizard serves the award registration site.
package main

import (
	"os"

	"github.com/livetemplate/awardwizard/cmd/awardwizard/commands"
)

func main() {
	os.Exit(commands.Execute())
}
