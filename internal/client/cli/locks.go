package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/salesnav/internal/client/api"
	"github.com/iudanet/salesnav/internal/models"
)

func newLockCmd(app *App) *cobra.Command {
	var (
		pf    pageFlags
		check bool
	)

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Acquire (or with --check inspect) the edit lock of a project page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			token, err := app.token(ctx)
			if err != nil {
				return err
			}
			key := pf.key()

			if check {
				status, err := app.apiClient.LockStatus(ctx, token, key)
				if err != nil {
					return err
				}
				switch {
				case !status.Locked:
					app.io.Println("Page is not locked.")
				case status.HeldByMe:
					app.io.Printf("Page is locked by you until %s\n", status.Lock.ExpiresAt.Local().Format(time.RFC3339))
				default:
					app.io.Printf("Page is locked by %s until %s\n", status.Lock.HolderName, status.Lock.ExpiresAt.Local().Format(time.RFC3339))
				}
				return nil
			}

			lock, err := app.apiClient.AcquireLock(ctx, token, key)
			if err != nil {
				return lockError(err)
			}
			if err := app.store.SaveLock(ctx, lock); err != nil {
				return fmt.Errorf("lock acquired but not recorded locally: %w", err)
			}

			app.io.Printf("✓ Locked page %d (page size %d, filter %s) until %s\n",
				key.Page, key.PageSize, key.FilterHash, lock.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVar(&check, "check", false, "Only show who holds the lock")
	return cmd
}

func newUnlockCmd(app *App) *cobra.Command {
	var (
		pf  pageFlags
		all bool
	)

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release a page lock, or every lock recorded locally with --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			token, err := app.token(ctx)
			if err != nil {
				return err
			}

			keys := []models.LockKey{pf.key()}
			if all {
				locks, err := app.store.ListLocks(ctx)
				if err != nil {
					return err
				}
				keys = keys[:0]
				for _, l := range locks {
					keys = append(keys, l.Key)
				}
				if len(keys) == 0 {
					app.io.Println("No page locks recorded locally.")
					return nil
				}
			}

			var errs []error
			for _, key := range keys {
				released, err := app.editor.Release(ctx, token, key)
				if err != nil {
					errs = append(errs, fmt.Errorf("page %d: %w", key.Page, err))
					continue
				}
				if released {
					app.io.Printf("✓ Released page %d (page size %d, filter %s)\n", key.Page, key.PageSize, key.FilterHash)
				} else {
					app.io.Printf("Page %d (page size %d, filter %s) was not locked by you\n", key.Page, key.PageSize, key.FilterHash)
				}
			}
			return errors.Join(errs...)
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Release every lock recorded locally")
	return cmd
}

// lockError дополняет отказ в блокировке временем истечения чужой блокировки
func lockError(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Holder != nil {
		return fmt.Errorf("%s (lock expires %s)", apiErr.Message, apiErr.Holder.ExpiresAt.Local().Format(time.RFC3339))
	}
	return err
}
