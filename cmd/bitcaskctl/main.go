// Command bitcaskctl is an interactive REPL client for a running
// bitcaskd server.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/Alfurquan/bitcaskpy/bitcask"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 9999
)

func main() {
	host := flag.String("host", defaultHost, "server host")
	port := flag.Int("port", defaultPort, "server port")
	flag.Parse()

	client, err := bitcask.Connect(bitcask.WithHost(*host), bitcask.WithPort(*port))
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	fmt.Printf("Connected to %v:%d\n", *host, *port)
	fmt.Println("Type commands. 'help' for information or 'exit' to quit.")

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("input error:", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return
		}

		cmd, key, value, err := splitCommandLine(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}

		resp, err := client.Execute(cmd, key, value)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(resp)
	}
}

// splitCommandLine tokenizes one REPL line shell-style, so values may be
// quoted to contain spaces ("set greeting 'hello world'"), and returns
// the command, key, and value arguments the wire protocol expects.
func splitCommandLine(line string) (cmd, key, value string, err error) {
	tokens, err := shellquote.Split(line)
	if err != nil {
		return "", "", "", fmt.Errorf("splitCommandLine: %w", err)
	}
	if len(tokens) == 0 {
		return "", "", "", fmt.Errorf("splitCommandLine: empty command")
	}

	cmd = tokens[0]
	if len(tokens) > 1 {
		key = tokens[1]
	}
	if len(tokens) > 2 {
		value = strings.Join(tokens[2:], " ")
	}
	return cmd, key, value, nil
}
