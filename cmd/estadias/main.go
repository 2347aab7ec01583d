// Command estadias は学生の企業実習（estadías）管理APIを起動する。
//
//	estadias [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/estadias/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "estadias: %v\n", err)
		os.Exit(1)
	}
}
