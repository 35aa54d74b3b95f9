// Command crowdctl queries a running crowd simulation over the debug bridge.
package main

func main() {
	Execute()
}
