// Command steadyhand runs resilient browser automation scenarios.
package main

import "github.com/devicelab-dev/steadyhand/pkg/cli"

func main() {
	cli.Execute()
}
