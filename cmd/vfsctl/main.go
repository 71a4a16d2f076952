// Command vfsctl is a small driver for exercising the layered virtual
// filesystem (DevFS under an OverlayFS whose upper layer is TmpFS) from the
// command line, the way the teacher's cmd/main.go exercised its disk-image
// drivers.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
	"github.com/wyrmwood-systems/vfscore/device"
	"github.com/wyrmwood-systems/vfscore/devfs"
	"github.com/wyrmwood-systems/vfscore/driver"
	"github.com/wyrmwood-systems/vfscore/overlayfs"
	"github.com/wyrmwood-systems/vfscore/tmpfs"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

func main() {
	app := &cli.App{
		Name:  "vfsctl",
		Usage: "exercise the tmpfs/overlayfs/devfs stack from a terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "tmpfs-size",
				Usage: "TmpFS upper-layer budget, e.g. 64M or 1048576; 0 for unlimited",
				Value: "64M",
			},
			&cli.StringSliceFlag{
				Name:  "device",
				Usage: "register a /dev node: name:char or name:block:sectors:sectorsize",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "list a directory",
				ArgsUsage: "PATH",
				Action:    cmdLs,
			},
			{
				Name:      "cat",
				Usage:     "print a file's contents",
				ArgsUsage: "PATH",
				Action:    cmdCat,
			},
			{
				Name:      "write",
				Usage:     "write text to a file, creating it if necessary",
				ArgsUsage: "PATH TEXT",
				Action:    cmdWrite,
			},
			{
				Name:      "mkdir",
				Usage:     "create a directory and its parents",
				ArgsUsage: "PATH",
				Action:    cmdMkdir,
			},
			{
				Name:   "devices",
				Usage:  "list the devices registered under /dev",
				Action: cmdDevices,
			},
			{
				Name:      "script",
				Usage:     "run a sequence of commands from a file in one session",
				ArgsUsage: "FILE",
				Action:    cmdScript,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("vfsctl: %s", err.Error())
	}
}

// parseDeviceSpec parses "name:char" or "name:block:sectors:sectorsize".
func parseDeviceSpec(spec string) (name string, kind device.Kind, dev device.Device, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return "", 0, nil, fmt.Errorf("invalid --device %q: expected name:char or name:block:sectors:sectorsize", spec)
	}
	name = parts[0]

	switch parts[1] {
	case "char":
		return name, device.Char, device.NewRamCharDevice(), nil
	case "block":
		sectors, sectorSize := 1, 512
		if len(parts) >= 4 {
			sectors, err = strconv.Atoi(parts[2])
			if err != nil {
				return "", 0, nil, fmt.Errorf("invalid sector count in --device %q: %w", spec, err)
			}
			sectorSize, err = strconv.Atoi(parts[3])
			if err != nil {
				return "", 0, nil, fmt.Errorf("invalid sector size in --device %q: %w", spec, err)
			}
		}
		return name, device.Block, device.NewRamBlockDevice(sectors, sectorSize), nil
	default:
		return "", 0, nil, fmt.Errorf("invalid --device %q: kind must be char or block", spec)
	}
}

// buildResolver assembles the layered filesystem from CLI flags: a fresh
// device manager seeded from --device, DevFS over it as the overlay's sole
// lower layer, and a fresh TmpFS as the overlay's upper (writable) layer.
// Every invocation starts from empty state, since nothing here is backed by
// real storage (section 1 scopes TmpFS/OverlayFS/DevFS as RAM-resident).
func buildResolver(c *cli.Context) (*driver.Resolver, error) {
	mgr := device.NewManager()
	for _, spec := range c.StringSlice("device") {
		name, kind, dev, err := parseDeviceSpec(spec)
		if err != nil {
			return nil, err
		}
		if _, rerr := mgr.RegisterNamed(name, kind, dev); rerr != nil {
			return nil, fmt.Errorf("registering device %q: %s", name, rerr.Error())
		}
	}

	budget, berr := tmpfs.ParseOptionString("size=" + c.String("tmpfs-size"))
	if berr != nil {
		return nil, fmt.Errorf("parsing --tmpfs-size: %s", berr.Error())
	}

	upper := tmpfs.New(budget, mgr)
	lower := devfs.New(mgr)
	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})
	return driver.New(ov), nil
}

func cmdLs(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: vfsctl ls PATH")
	}
	r, err := buildResolver(c)
	if err != nil {
		return err
	}
	entries, derr := r.Readdir(c.Args().First())
	if derr != nil {
		return derr
	}
	for _, e := range entries {
		fmt.Printf("%-20s file_id=%d type=%d\n", e.Name, e.FileID, e.FileType)
	}
	return nil
}

func cmdCat(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: vfsctl cat PATH")
	}
	r, err := buildResolver(c)
	if err != nil {
		return err
	}
	content, derr := r.ReadFile(c.Args().First())
	if derr != nil {
		return derr
	}
	_, werr := os.Stdout.Write(content)
	return werr
}

func cmdWrite(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: vfsctl write PATH TEXT")
	}
	r, err := buildResolver(c)
	if err != nil {
		return err
	}
	perm := vfs.Permissions{Read: true, Write: true}
	if derr := r.WriteFile(c.Args().Get(0), []byte(c.Args().Get(1)), perm); derr != nil {
		return derr
	}
	fmt.Printf("wrote %d bytes to %s\n", len(c.Args().Get(1)), c.Args().Get(0))
	return nil
}

func cmdMkdir(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: vfsctl mkdir PATH")
	}
	r, err := buildResolver(c)
	if err != nil {
		return err
	}
	perm := vfs.Permissions{Read: true, Write: true, Execute: true}
	return r.MkdirAll(c.Args().First(), perm)
}

func cmdDevices(c *cli.Context) error {
	r, err := buildResolver(c)
	if err != nil {
		return err
	}
	entries, derr := r.Readdir("/")
	if derr != nil {
		return derr
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		fmt.Println(e.Name)
	}
	return nil
}

// cmdScript runs every line of a script file as one vfsctl subcommand in a
// single in-memory session, collecting every line's error with
// hashicorp/go-multierror instead of aborting at the first failure, so one
// bad line doesn't hide the rest of the run's results.
func cmdScript(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: vfsctl script FILE")
	}
	r, err := buildResolver(c)
	if err != nil {
		return err
	}

	f, oerr := os.Open(c.Args().First())
	if oerr != nil {
		return oerr
	}
	defer f.Close()

	var result *multierror.Error
	perm := vfs.Permissions{Read: true, Write: true, Execute: true}

	lineNum := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		var runErr error
		switch fields[0] {
		case "mkdir":
			runErr = r.MkdirAll(fields[1], perm)
		case "write":
			runErr = r.WriteFile(fields[1], []byte(strings.Join(fields[2:], " ")), perm)
		case "cat":
			content, rerr := r.ReadFile(fields[1])
			if rerr == nil {
				fmt.Printf("%s: %s\n", fields[1], string(content))
			}
			runErr = rerr
		case "ls":
			entries, rerr := r.Readdir(fields[1])
			if rerr == nil {
				for _, e := range entries {
					fmt.Printf("%s%s\n", fields[1], "/"+e.Name)
				}
			}
			runErr = rerr
		case "ln":
			runErr = r.Link(fields[1], fields[2])
		case "symlink":
			runErr = r.Symlink(fields[1], fields[2])
		case "rm":
			runErr = r.Remove(fields[1])
		default:
			runErr = fmt.Errorf("unknown command %q", fields[0])
		}

		if runErr != nil {
			result = multierror.Append(result, fmt.Errorf("line %d: %w", lineNum, runErr))
		}
	}
	if serr := scanner.Err(); serr != nil {
		result = multierror.Append(result, serr)
	}

	return result.ErrorOrNil()
}
