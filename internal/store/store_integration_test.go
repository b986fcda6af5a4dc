// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/internal/store"
)

var _ = Describe("PostgreSQL identity store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		s         *store.Store
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("userauth_test"),
			postgres.WithUsername("userauth"),
			postgres.WithPassword("userauth"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		opts := store.DefaultOptions()
		opts.AutoMigrate = true
		s, err = store.Open(ctx, connStr, opts)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if s != nil {
			s.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	newCredential := func(email string) *auth.Credential {
		return &auth.Credential{
			Identity: auth.Identity{
				ID:        uuid.New(),
				Name:      "Ada Lovelace",
				Age:       36,
				Phone:     "+442079460958",
				Email:     email,
				CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
			},
			PasswordHash: "$2a$04$hash",
		}
	}

	It("reports the postgres dialect", func() {
		Expect(s.Dialect()).To(Equal(store.DialectPostgres))
		Expect(s.Ping(ctx)).To(Succeed())
	})

	It("round-trips an identity", func() {
		cred := newCredential("roundtrip@example.com")
		Expect(s.Identities.Create(ctx, cred)).To(Succeed())

		byID, err := s.Identities.GetByID(ctx, cred.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID).To(Equal(cred))

		byEmail, err := s.Identities.GetByEmail(ctx, "RoundTrip@Example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(cred.ID))
	})

	It("rejects a second identity with the same email in any case", func() {
		Expect(s.Identities.Create(ctx, newCredential("dupe@example.com"))).To(Succeed())

		err := s.Identities.Create(ctx, newCredential("DUPE@example.com"))
		Expect(errors.Is(err, auth.ErrDuplicateIdentifier)).To(BeTrue())
	})

	It("lets exactly one of many concurrent creates win", func() {
		const attempts = 10
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				err := s.Identities.Create(ctx, newCredential("race@example.com"))
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				Expect(errors.Is(err, auth.ErrDuplicateIdentifier)).To(BeTrue())
			}()
		}
		wg.Wait()
		Expect(successes).To(Equal(1))
	})

	It("deletes identities", func() {
		cred := newCredential("delete@example.com")
		Expect(s.Identities.Create(ctx, cred)).To(Succeed())
		Expect(s.Identities.Delete(ctx, cred.ID)).To(Succeed())

		_, err := s.Identities.GetByID(ctx, cred.ID)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

		err = s.Identities.Delete(ctx, cred.ID)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})
})
