// Command s3stream is an example program exercising s3reader, s3writer, and
// internal/s3aux: cat streams an object to stdout, put streams stdin to an
// object, rmrf recursively deletes every bucket matching a prefix.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

var opts struct {
	Profile string      `short:"p" long:"profile" description:"override AWS_PROFILE if given"`
	Cat     CatCommand  `command:"cat" description:"stream an S3 object to stdout using s3reader"`
	Put     PutCommand  `command:"put" description:"stream stdin to an S3 object using s3writer"`
	Rmrf    RmrfCommand `command:"rmrf" description:"recursively delete every bucket whose name starts with the given prefix"`
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	p.CommandHandler = func(command flags.Commander, args []string) error {
		if opts.Profile != "" {
			if err := os.Setenv("AWS_PROFILE", opts.Profile); err != nil {
				return fmt.Errorf("set AWS_PROFILE error: %w", err)
			}
		}

		return command.Execute(args)
	}

	if _, err := p.Parse(); err != nil && !flags.WroteHelp(err) {
		os.Exit(1)
	}
}
