// Command tomato-probe is the component introspection CLI named in
// spec §6: status, attrs, capabilities, constants, get against a
// component identified by `<port>:(<address>,<channel>)`, where port is
// the driver process's socket port; a driver name is not accepted in
// its place. It talks directly to that socket, not the daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgbowl/tomato/internal/cliutil"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

func main() {
	var (
		target  = flag.String("component", "", `component address, "<driverport>:(<address>,<channel>)"`)
		timeout = flag.Int("timeout", 1000, "request timeout in ms")
		yamlOut = flag.Bool("yaml", false, "structured YAML output")
	)
	flag.Parse()

	if flag.NArg() < 1 || *target == "" {
		fmt.Fprintln(os.Stderr, `usage: tomato-probe -component <port>:(<address>,<channel>) <status|attrs|capabilities|constants|get> [attr…]`)
		os.Exit(2)
	}

	port, address, channel, err := parseTarget(*target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	client := rpc.NewClient(fmt.Sprintf("127.0.0.1:%d", port), time.Duration(*timeout)*time.Millisecond)
	params := map[string]any{"address": address, "channel": channel}

	cmd := flag.Arg(0)
	var reply tomato.Reply
	switch cmd {
	case "status":
		reply, err = client.Call("cmp_status", params)
	case "attrs":
		reply, err = client.Call("cmp_attrs", params)
	case "capabilities":
		reply, err = client.Call("cmp_capabilities", params)
	case "constants":
		reply, err = client.Call("cmp_constants", params)
	case "get":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: tomato-probe ... get <attr>…")
			os.Exit(2)
		}
		results := map[string]any{}
		for _, attr := range flag.Args()[1:] {
			p := map[string]any{"address": address, "channel": channel, "attr": attr}
			r, callErr := client.Call("cmp_get_attr", p)
			if callErr != nil {
				err = callErr
				break
			}
			results[attr] = r.Data
		}
		reply = tomato.Ok("get", results)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}

	if renderErr := cliutil.Render(os.Stdout, reply, *yamlOut); renderErr != nil {
		fmt.Fprintln(os.Stderr, renderErr)
		os.Exit(1)
	}
	os.Exit(cliutil.ExitCode(reply))
}

// parseTarget splits "<port>:(<address>,<channel>)" into its parts.
func parseTarget(target string) (port int, address string, channel int, err error) {
	parts := strings.SplitN(target, ":(", 2)
	if len(parts) != 2 || !strings.HasSuffix(parts[1], ")") {
		return 0, "", 0, fmt.Errorf("component target must look like <port>:(<address>,<channel>)")
	}
	port, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", 0, fmt.Errorf("invalid port %q: %w", parts[0], err)
	}
	inner := strings.TrimSuffix(parts[1], ")")
	fields := strings.SplitN(inner, ",", 2)
	if len(fields) != 2 {
		return 0, "", 0, fmt.Errorf("component target must look like <port>:(<address>,<channel>)")
	}
	address = strings.TrimSpace(fields[0])
	channel, err = strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0, "", 0, fmt.Errorf("invalid channel %q: %w", fields[1], err)
	}
	return port, address, channel, nil
}
