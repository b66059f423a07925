package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/impact-eintr/ministack/config"
	"github.com/impact-eintr/ministack/tcpip/network/arp"
)

// arpRecord arp 表项的 yaml 形式
type arpRecord struct {
	IP      string    `yaml:"ip"`
	MAC     string    `yaml:"mac,omitempty"`
	State   string    `yaml:"state"`
	Updated time.Time `yaml:"updated"`
}

type identity struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	MAC     string `yaml:"mac"`
	MTU     uint32 `yaml:"mtu"`
}

type arpDump struct {
	Interface identity    `yaml:"interface"`
	Entries   []arpRecord `yaml:"entries"`
}

func renderARP(cfg *config.Config, entries []arp.Entry) ([]byte, error) {
	dump := arpDump{
		Interface: identity{
			Name:    cfg.Interface.Name,
			Address: cfg.Interface.Address,
			MAC:     cfg.Interface.MAC,
			MTU:     cfg.Interface.MTU,
		},
		Entries: make([]arpRecord, 0, len(entries)),
	}
	for _, e := range entries {
		r := arpRecord{
			IP:      e.Address.String(),
			State:   e.State.String(),
			Updated: e.Updated.UTC().Truncate(time.Second),
		}
		if e.LinkAddress != "" {
			r.MAC = e.LinkAddress.String()
		}
		dump.Entries = append(dump.Entries, r)
	}
	out, err := yaml.Marshal(&dump)
	if err != nil {
		return nil, fmt.Errorf("marshal arp table: %w", err)
	}
	return out, nil
}

var arpCmd = &cobra.Command{
	Use:   "arp",
	Short: "Print the configured interface identity",
	Long: `Print the address the stack answers ARP for, as yaml.

The live table of a running stack is written to the log every
arp.dump_interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		out, err := renderARP(cfg, nil)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(arpCmd)
}
