/***
Copyright 2014 Cisco Systems Inc. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/opendaylight/groupbasedpolicy-sub013/ofrender"
	"github.com/opendaylight/groupbasedpolicy-sub013/ofswitch"
	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
	"github.com/opendaylight/groupbasedpolicy-sub013/rendererd"
	"github.com/opendaylight/groupbasedpolicy-sub013/utils"
	"github.com/opendaylight/groupbasedpolicy-sub013/version"
)

const binName = "ofrenderer"

func initDaemon(ctx *cli.Context) (*rendererd.Daemon, error) {
	// 1. validate and init logging
	if err := utils.InitLogging(binName, ctx); err != nil {
		return nil, err
	}

	// 2. validate renderer configs
	rendererConfigs, err := utils.ValidateRendererOptions(binName, ctx)
	if err != nil {
		return nil, err
	}

	// 3. validate db configs and connect
	dbConfigs, err := utils.ValidateDBOptions(binName, ctx)
	if err != nil {
		return nil, err
	}
	stateDriver, err := utils.NewStateDriver(dbConfigs.StoreDriver, dbConfigs.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s state store: %v", binName, err)
	}

	return rendererd.NewDaemon(rendererConfigs, stateDriver), nil
}

func runDaemon(ctx *cli.Context) error {
	d, err := initDaemon(ctx)
	if err != nil {
		return err
	}
	defer utils.ReleaseStateDriver()

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Run(runCtx)
}

// renderSnapshot runs one pass over a snapshot file against simulated
// switches and prints the resulting tables.
func renderSnapshot(ctx *cli.Context, out io.Writer) error {
	snap, err := policycfg.LoadSnapshotFile(ctx.String("snapshot"))
	if err != nil {
		return err
	}

	channel := ofswitch.NewMemChannel()
	r := ofrender.NewRenderer(ofrender.Config{TunnelType: ctx.String("tunnel-type")},
		ofrender.StaticSource(snap), channel, nil, nil)

	nodes := snap.NodeIDs()
	if node := ctx.String("node"); node != "" {
		nodes = []string{node}
		err = r.Sync(ctx.Context, node)
	} else {
		err = r.SyncAll(ctx.Context)
	}
	if err != nil {
		return err
	}

	for _, node := range nodes {
		fmt.Fprintf(out, "switch %s:\n", node)
		for _, line := range channel.Dump(node) {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	return nil
}

func inspectSwitches(ctx *cli.Context, out io.Writer) error {
	base := "http://" + ctx.String("listen-url") + "/"
	if node := ctx.String("node"); node != "" {
		tables := rendererd.SwitchTables{}
		if err := utils.HTTPGet(base+rendererd.SwitchesRESTEndpoint+"/"+node, &tables); err != nil {
			return err
		}
		for _, line := range tables.Dump {
			fmt.Fprintln(out, line)
		}
		return nil
	}

	switches := []rendererd.SwitchInfo{}
	if err := utils.HTTPGet(base+rendererd.SwitchesRESTEndpoint, &switches); err != nil {
		return err
	}
	for _, sw := range switches {
		fmt.Fprintf(out, "%-20s flows=%-6d groups=%-4d synced=%v\n", sw.NodeID, sw.Flows, sw.Groups, sw.Synced)
	}
	return nil
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = binName
	app.Version = "\n" + version.String()
	app.Usage = "OpenFlow overlay policy renderer"
	app.Writer = out

	app.Commands = []*cli.Command{
		{
			Name:   "daemon",
			Usage:  "follow the state store and keep the switches programmed",
			Flags:  utils.FlattenFlags(utils.BuildRendererFlags(binName), utils.BuildDBFlags(binName), utils.BuildLogFlags(binName)),
			Action: runDaemon,
		},
		{
			Name:  "render",
			Usage: "print the tables a snapshot file renders to",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "snapshot", Aliases: []string{"f"}, Required: true, Usage: "yaml or json snapshot file"},
				&cli.StringFlag{Name: "node", Usage: "render only this node"},
				&cli.StringFlag{Name: "tunnel-type", Value: "vxlan", Usage: "overlay tunnel type"},
			},
			Action: func(ctx *cli.Context) error {
				return renderSnapshot(ctx, out)
			},
		},
		{
			Name:  "inspect",
			Usage: "show the switches of a running daemon",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "listen-url", Value: "127.0.0.1:9010", Usage: "daemon inspect address"},
				&cli.StringFlag{Name: "node", Usage: "dump the tables of this node"},
			},
			Action: func(ctx *cli.Context) error {
				return inspectSwitches(ctx, out)
			},
		},
	}
	return app
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatalf("%s failed: %v", binName, err)
	}
}
