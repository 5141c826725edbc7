package services

import (
	"time"

	"github.com/rs/zerolog/log"
)

const stalePartialAge = 60 * time.Minute

// DoStalePartialCleanup removes uploads that were never finished, such as
// those cut off by a crash in the middle of a write.
func DoStalePartialCleanup(storage *LocalStorage) {
	log.Debug().Msg("Now cleaning up unfinished uploads...")

	count, err := storage.SweepPartial(stalePartialAge)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when cleaning up unfinished uploads...")
		return
	}

	log.Debug().Int("affected", count).Msg("Clean up unfinished uploads accomplished.")
}
