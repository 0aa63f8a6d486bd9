package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/shamimkhan539/PressBox-sub006/internal/cli"
)

func cmdCreate(client *cli.Client, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	domain := fs.String("domain", "", "Custom local domain (e.g. mysite.local)")
	port := fs.Int("port", 0, "Pin the site to an exact port (default: auto-allocate)")
	php := fs.String("php", "", "PHP version (e.g. 8.3)")
	wp := fs.String("wp", "", "WordPress version")
	webServer := fs.String("web-server", "", "Web server (nginx|apache)")
	env := fs.String("env", "", "Environment (native|container)")
	engine := fs.String("db", "", "Database engine (sqlite|mysql)")
	ssl := fs.Bool("ssl", false, "Serve over https (container environment only)")
	multisite := fs.Bool("multisite", false, "Enable WordPress multisite")
	adminUser := fs.String("admin-user", "", "WordPress admin username")
	adminPassword := fs.String("admin-password", "", "WordPress admin password (default: generated)")
	adminEmail := fs.String("admin-email", "", "WordPress admin email")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pressbox create [flags] <name>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	c, cancel := ctx()
	defer cancel()
	site, err := client.CreateSite(c, cli.CreateSiteRequest{
		Name:             fs.Arg(0),
		Domain:           *domain,
		Port:             *port,
		PHPVersion:       *php,
		WordPressVersion: *wp,
		WebServer:        *webServer,
		Environment:      *env,
		DatabaseEngine:   *engine,
		SSL:              *ssl,
		Multisite:        *multisite,
		AdminUser:        *adminUser,
		AdminPassword:    *adminPassword,
		AdminEmail:       *adminEmail,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Created site %q\n", site.Name)
	printSite(site)
}

func cmdList(client *cli.Client) {
	c, cancel := ctx()
	defer cancel()
	sites, err := client.ListSites(c)
	if err != nil {
		fatal(err)
	}
	if len(sites) == 0 {
		fmt.Println("No sites. Create one with: pressbox create <name>")
		return
	}

	fmt.Printf("%-24s %-10s %-11s %-6s %s\n", "NAME", "STATUS", "ENVIRONMENT", "PORT", "URL")
	for _, s := range sites {
		port := "-"
		if s.Port != 0 {
			port = fmt.Sprintf("%d", s.Port)
		}
		fmt.Printf("%-24s %-10s %-11s %-6s %s\n", s.Name, s.Status, s.Environment, port, s.URL())
	}
}

func cmdGet(client *cli.Client, args []string) {
	site := resolve(client, args, "Usage: pressbox get <name|id>")
	printSite(site)
}

func cmdStart(client *cli.Client, args []string) {
	site := resolve(client, args, "Usage: pressbox start <name|id>")
	c, cancel := ctx()
	defer cancel()
	site, err := client.StartSite(c, site.ID)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Site %q is %s at %s\n", site.Name, site.Status, site.URL())
}

func cmdStop(client *cli.Client, args []string) {
	site := resolve(client, args, "Usage: pressbox stop <name|id>")
	c, cancel := ctx()
	defer cancel()
	site, err := client.StopSite(c, site.ID)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Site %q is %s\n", site.Name, site.Status)
}

func cmdDelete(client *cli.Client, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Parse(args)

	site := resolve(client, fs.Args(), "Usage: pressbox delete [-yes] <name|id>")
	if !*yes {
		fmt.Printf("Delete site %q and all its files under %s? [y/N] ", site.Name, site.Path)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	c, cancel := ctx()
	defer cancel()
	if err := client.DeleteSite(c, site.ID); err != nil {
		fatal(err)
	}
	fmt.Printf("Deleted site %q\n", site.Name)
}

func cmdMigrate(client *cli.Client, args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	to := fs.String("to", "", "Target environment (native|container)")
	fs.Parse(args)

	if *to == "" {
		fmt.Fprintln(os.Stderr, "Usage: pressbox migrate -to <native|container> <name|id>")
		os.Exit(1)
	}

	site := resolve(client, fs.Args(), "Usage: pressbox migrate -to <native|container> <name|id>")
	c, cancel := ctx()
	defer cancel()
	site, err := client.MigrateSite(c, site.ID, *to)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Site %q now runs in the %s environment\n", site.Name, site.Environment)
}

func cmdLogs(client *cli.Client, args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	lines := fs.Int("lines", 200, "Number of trailing lines to show")
	fs.Parse(args)

	site := resolve(client, fs.Args(), "Usage: pressbox logs [-lines N] <name|id>")
	c, cancel := ctx()
	defer cancel()
	logs, err := client.SiteLogs(c, site.ID, *lines)
	if err != nil {
		fatal(err)
	}
	fmt.Print(logs)
}

func cmdDBServers(client *cli.Client, args []string) {
	c, cancel := ctx()
	defer cancel()

	if len(args) > 0 && args[0] == "stop" {
		if err := client.StopDBServers(c); err != nil {
			fatal(err)
		}
		fmt.Println("Shared database servers stopped.")
		return
	}

	servers, err := client.DBServers(c)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%-10s %-9s %-6s %s\n", "ENGINE", "RUNNING", "PORT", "DATA DIRECTORY")
	for _, s := range servers {
		port := "-"
		if s.Port != 0 {
			port = fmt.Sprintf("%d", s.Port)
		}
		dataDir := s.DataDirectory
		if dataDir == "" {
			dataDir = "-"
		}
		fmt.Printf("%-10s %-9t %-6s %s\n", s.Engine, s.Running, port, dataDir)
	}
}

func cmdPorts(client *cli.Client) {
	c, cancel := ctx()
	defer cancel()
	leases, err := client.PortLeases(c)
	if err != nil {
		fatal(err)
	}
	if len(leases) == 0 {
		fmt.Println("No active port leases.")
		return
	}
	fmt.Printf("%-6s %s\n", "PORT", "SITE")
	for _, l := range leases {
		fmt.Printf("%-6d %s\n", l.Port, l.SiteID)
	}
}

func cmdHosts(client *cli.Client) {
	c, cancel := ctx()
	defer cancel()
	entries, err := client.HostsEntries(c)
	if err != nil {
		fatal(err)
	}
	if len(entries) == 0 {
		fmt.Println("No managed hosts entries.")
		return
	}
	fmt.Printf("%-30s %-15s %s\n", "DOMAIN", "IP", "SITE")
	for _, e := range entries {
		fmt.Printf("%-30s %-15s %s\n", e.Domain, e.IP, e.SiteID)
	}
}
