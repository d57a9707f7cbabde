// Command creditkit analyzes financial statement workbooks for credit risk.
package main

import "github.com/klytics/creditkit/cmd"

func main() {
	cmd.Execute()
}
