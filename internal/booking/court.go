package booking

import (
	"context"
	"fmt"

	"courtbook/internal/retry"
)

// acquireCourt polls until the target time-slot's court selector renders.
// The column only exists once a search completes with capacity in that
// slot, so absence is the expected steady state while the availability
// window is closed. The loop has no iteration cap: it ends when the slot
// frees up or the run's context dies.
func (f *Flow) acquireCourt(ctx context.Context) error {
	slotSel := courtSelector(f.Cfg.TimeSlot)
	edit := editLink(f.Cfg.TimeSlot)
	court := paddedCourt(f.Cfg.Court)

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := retry.Do(ctx, &f.Log, "search courts", f.StepRetry, func(ctx context.Context) error {
			return f.Page.ClickAndWait(ctx, selSearch)
		}); err != nil {
			return fmt.Errorf("search button unavailable: %w", err)
		}

		if err := f.Page.WaitVisible(ctx, slotSel, f.Cfg.SlotPollTimeout); err != nil {
			f.Log.Debug().Int("iteration", iteration).Str("slot", f.Cfg.TimeSlot).Msg("slot not offered yet")
			if err := f.pause(ctx, f.Cooldown); err != nil {
				return err
			}
			continue
		}

		f.Log.Info().Int("iteration", iteration).Msg("court selector found, selecting court")
		if err := f.Page.SelectOption(ctx, slotSel, court); err != nil {
			f.Log.Debug().Err(err).Msg("court select failed, re-searching")
			if err := f.pause(ctx, f.Cooldown); err != nil {
				return err
			}
			continue
		}
		if err := f.Page.ClickAndWait(ctx, edit); err != nil {
			f.Log.Debug().Err(err).Msg("edit link click failed, re-searching")
			if err := f.pause(ctx, f.Cooldown); err != nil {
				return err
			}
			continue
		}

		f.Log.Info().Int("iteration", iteration).Str("court", f.Cfg.Court).Msg("court selected")
		return nil
	}
}

// paddedCourt right-pads single-digit court numbers with one space: some
// grid layouts label their select options that way and the select matches
// on the exact label.
func paddedCourt(court string) string {
	if len(court) == 1 {
		return court + " "
	}
	return court
}
