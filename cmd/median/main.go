package main

import (
	"os"

	"horse.fit/median/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
