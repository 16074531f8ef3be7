// Copyright 2022 Praetorian Security, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runner

import (
	"fmt"
	"os"
	"strings"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/probe"
	"github.com/spf13/cobra"
)

var (
	config  cliConfig
	rootCmd = &cobra.Command{
		Use:   "sshpubkey <host:port> <key_type>",
		Short: "Fetch the public host key of an SSH server",
		Long: fmt.Sprintf(
			"Connects to an SSH server, asks for a host key of the given type (%s),\n"+
				"verifies the server's signature and prints the key.",
			familyList(),
		),
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configErr := checkConfig(config)
			if configErr != nil {
				return configErr
			}

			logger := newLogger(cmd.ErrOrStderr(), config.verbose, isTerminal(os.Stderr))
			probeConfig := createProbeConfig(config, args[1])
			probeConfig.Logger = logger

			result, err := probe.ProbeTarget(args[0], probeConfig)
			if err != nil {
				return fmt.Errorf("Failed fetching host key from %s (%w)", args[0], err)
			}

			err = Report(cmd.OutOrStdout(), result)
			if err != nil {
				return fmt.Errorf("Failed reporting host key (%w)", err)
			}

			return nil
		},
	}
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&config.outputFile, "output", "o", "", "output file")
	rootCmd.PersistentFlags().
		BoolVarP(&config.outputJSON, "json", "", false, "output format in json")
	rootCmd.PersistentFlags().
		BoolVarP(&config.knownHosts, "known-hosts", "", false, "output format as a known_hosts line")
	rootCmd.PersistentFlags().
		BoolVarP(&config.md5, "md5", "", false, "print the legacy MD5 fingerprint instead of SHA256")
	rootCmd.PersistentFlags().
		StringVarP(&config.clientVersion, "client-id", "", "", "identification string sent to the server")

	rootCmd.PersistentFlags().BoolVarP(&config.verbose, "verbose", "v", false, "verbose mode")
	rootCmd.PersistentFlags().
		IntVarP(&config.timeout, "timeout", "w", 5000, "timeout (milliseconds)")
}

func familyList() string {
	var names []string
	for _, family := range algorithms.Families() {
		names = append(names, string(family))
	}
	return strings.Join(names, ", ")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
