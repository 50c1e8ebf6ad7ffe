// ./main.go
package main

import "github.com/xkilldash9x/checkout-cli/cmd"

func main() {
	cmd.Execute()
}
