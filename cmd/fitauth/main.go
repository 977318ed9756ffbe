// Command fitauth はユーザー登録・ログインAPIサーバーを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/fitauth/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fitauth: %v\n", err)
		os.Exit(1)
	}
}
