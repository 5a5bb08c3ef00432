package main

import "github.com/stoik/triage/services/triage-service/internal/app"

func main() {
	app.Execute()
}
