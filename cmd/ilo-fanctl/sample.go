package main

import (
	"os"

	"github.com/fgeck/ilo-fanctl/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	sampleOutput string
	sampleDual   bool
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write a sample configuration file",
	Long: `Write a starter configuration with one iLO target (two with --dual).
Use --output - to print it instead. Existing files are never overwritten.`,
	RunE: writeSample,
}

func init() {
	sampleCmd.Flags().StringVarP(&sampleOutput, "output", "o", "ilo-fanctl.toml", "destination file, or - for stdout")
	sampleCmd.Flags().BoolVar(&sampleDual, "dual", false, "include a second iLO target")
}

func writeSample(cmd *cobra.Command, args []string) error {
	if sampleOutput == "-" {
		data, err := config.Sample(sampleDual)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	if err := config.WriteSample(sampleOutput, sampleDual); err != nil {
		log.Error().Err(err).Msg("failed to write sample config")
		return err
	}

	log.Info().Str("file", sampleOutput).Bool("dual", sampleDual).Msg("sample configuration written")
	return nil
}
