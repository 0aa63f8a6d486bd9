package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shamimkhan539/PressBox-sub006/internal/cli"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	client := cli.NewClient(daemonAddr())

	switch os.Args[1] {
	case "create":
		cmdCreate(client, os.Args[2:])
	case "list":
		cmdList(client)
	case "get":
		cmdGet(client, os.Args[2:])
	case "start":
		cmdStart(client, os.Args[2:])
	case "stop":
		cmdStop(client, os.Args[2:])
	case "delete":
		cmdDelete(client, os.Args[2:])
	case "migrate":
		cmdMigrate(client, os.Args[2:])
	case "logs":
		cmdLogs(client, os.Args[2:])
	case "dbservers":
		cmdDBServers(client, os.Args[2:])
	case "ports":
		cmdPorts(client)
	case "hosts":
		cmdHosts(client)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func daemonAddr() string {
	if v := os.Getenv("PRESSBOX_ADDR"); v != "" {
		return v
	}
	return "http://127.0.0.1:45119"
}

func ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 90*time.Second)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func resolve(client *cli.Client, args []string, usage string) *model.Site {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	c, cancel := ctx()
	defer cancel()
	site, err := client.ResolveSite(c, args[0])
	if err != nil {
		fatal(err)
	}
	return site
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: pressbox <command> [arguments]

Commands:
  create     Create a new site
  list       List all sites
  get        Show one site
  start      Start a site
  stop       Stop a site
  delete     Delete a site and its files
  migrate    Move a site between native and container environments
  logs       Show a site's web server output
  dbservers  Show shared database server status (add "stop" to shut them down)
  ports      Show active port leases
  hosts      Show managed hosts-file entries

The daemon address is taken from PRESSBOX_ADDR (default http://127.0.0.1:45119).`)
}

func printSite(site *model.Site) {
	fmt.Printf("%-18s %s\n", "ID", site.ID)
	fmt.Printf("%-18s %s\n", "Name", site.Name)
	fmt.Printf("%-18s %s\n", "Status", site.Status)
	fmt.Printf("%-18s %s\n", "URL", site.URL())
	fmt.Printf("%-18s %s\n", "Environment", site.Environment)
	fmt.Printf("%-18s %s\n", "PHP", site.PHPVersion)
	fmt.Printf("%-18s %s\n", "Database", site.Engine)
	fmt.Printf("%-18s %s\n", "Path", site.Path)
	if site.Domain != "" {
		fmt.Printf("%-18s %s\n", "Domain", site.Domain)
	}
}
