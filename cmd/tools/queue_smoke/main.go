// Command queue_smoke is a manual integration check for the Postgres job queue.
// It exercises claim, lease renewal, artifact versioning and the lease-guarded
// transition against a real database.
//
// Usage:
//
//	go run ./cmd/tools/queue_smoke
//
// Requires DATABASE_URL. Run it against a development database with no workers attached.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/types"
)

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "ERROR: DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	if err := db.Migrate(dsn); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to migrate: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	database, err := db.Connect(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	owner := fmt.Sprintf("smoke-%d", time.Now().Unix())
	const worker = "queue-smoke"

	fmt.Println("=== Job Queue Smoke Test ===")

	fmt.Println("\nStep 1: Creating job...")
	job, err := database.CreateJob(ctx, types.NewJob{
		OwnerID:     owner,
		Priority:    100,
		MaxAttempts: 3,
		Payload: types.JobPayload{
			Profile:        types.ProfileSnapshot{Name: "Smoke Test", ResumeText: "Smoke test resume."},
			JobDescription: "Smoke test job description for the queue integration check.",
			Mode:           types.ModeTailored,
		},
	})
	if err != nil {
		fail("CreateJob: %v", err)
	}
	fmt.Printf("  Created job %s (status %s)\n", job.ID, job.Status)

	fmt.Println("\nStep 2: Claiming job...")
	claimed, err := database.ClaimNextJob(ctx, worker, 30*time.Second)
	if err != nil {
		fail("ClaimNextJob: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		fail("expected to claim %s, got %v", job.ID, claimed)
	}
	fmt.Printf("  Claimed by %s until %s\n", claimed.LeaseOwner, claimed.LeaseExpiresAt.Format(time.RFC3339))

	fmt.Println("\nStep 3: Renewing lease and recording stage...")
	if err := database.RenewLease(ctx, job.ID, worker, time.Minute); err != nil {
		fail("RenewLease: %v", err)
	}
	if err := database.UpdateStage(ctx, job.ID, worker, types.StageDrafting); err != nil {
		fail("UpdateStage: %v", err)
	}
	if err := database.RenewLease(ctx, job.ID, "someone-else", time.Minute); !errors.Is(err, db.ErrLeaseLost) {
		fail("expected ErrLeaseLost for a foreign worker, got %v", err)
	}
	fmt.Println("  Lease renewal is owner-guarded")

	fmt.Println("\nStep 4: Writing artifact versions...")
	for i := 1; i <= 2; i++ {
		a, err := database.PutArtifact(ctx, types.NewArtifact{
			JobID:   job.ID,
			Type:    types.ArtifactDiagnosticLog,
			Content: []byte(fmt.Sprintf("attempt %d", i)),
		})
		if err != nil {
			fail("PutArtifact: %v", err)
		}
		if a.Version != i {
			fail("expected version %d, got %d", i, a.Version)
		}
	}
	_, err = database.PutArtifactVersion(ctx, types.NewArtifact{
		JobID:   job.ID,
		Type:    types.ArtifactDiagnosticLog,
		Content: []byte("duplicate"),
	}, 2)
	var conflict *db.ConflictError
	if !errors.As(err, &conflict) {
		fail("expected ConflictError for a duplicate version, got %v", err)
	}
	fmt.Println("  Versions 1 and 2 written; duplicate version rejected")

	fmt.Println("\nStep 5: Finishing job...")
	err = database.TransitionJob(ctx, job.ID, types.Transition{
		LeaseOwner: "someone-else",
		To:         types.JobStatusCompleted,
	})
	if !errors.Is(err, db.ErrLeaseLost) {
		fail("expected foreign transition to be rejected, got %v", err)
	}
	err = database.TransitionJob(ctx, job.ID, types.Transition{
		LeaseOwner: worker,
		To:         types.JobStatusFailed,
		LastError:  &types.JobError{Kind: types.ErrorKindCancelled, Message: "smoke test complete", At: time.Now()},
	})
	if err != nil {
		fail("TransitionJob: %v", err)
	}
	final, err := database.GetJob(ctx, job.ID)
	if err != nil {
		fail("GetJob: %v", err)
	}
	if final.Status != types.JobStatusFailed || final.LeaseOwner != "" {
		fail("unexpected final state: status=%s lease=%q", final.Status, final.LeaseOwner)
	}
	fmt.Printf("  Job %s is %s\n", final.ID, final.Status)

	fmt.Println("\n=== All Checks Passed ===")
}
