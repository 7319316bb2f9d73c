/*
main.go - Application entry point

PURPOSE:
  Runs the savings command line. `savings serve` starts the HTTP API with the
  scheduled accrual runner; the other commands are one-shot tools.

COMMANDS:
  serve      HTTP API + cron accrual runner, graceful shutdown on SIGINT/SIGTERM
  accrue     One accrual pass over every account (--now to pin the clock)
  project    Balance projection for a principal, category and rate
  migrate    Apply schema migrations and print the version

CONFIGURATION:
  Defaults, then .env, then --config YAML, then SAVINGS_* environment
  variables, then flags. See config/config.go.

EXAMPLES:
  # Run the server with a file database
  ./savings serve --db ./data/savings.db

  # Catch up accrual after restoring a backup
  ./savings accrue --db ./restored.db

  # What does 1000 in savings become?
  ./savings project --principal 1000 --category savings

SEE ALSO:
  - cli/root.go: Command tree and engine wiring
  - api/server.go: Router configuration
*/
package main

import "github.com/warp/savings-engine/cli"

func main() {
	cli.Execute()
}
