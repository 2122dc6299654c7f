//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/daemon"
	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/infra"
	"github.com/sudo-0-AM/ArcheTYPE/internal/policy"
	"github.com/sudo-0-AM/ArcheTYPE/internal/usecase"
	"github.com/sudo-0-AM/ArcheTYPE/test/fixtures"
)

var _ = Describe("Enforcement loop", func() {
	var (
		tmpDir     string
		store      *infra.FileStateStore
		procs      *fixtures.FakeProcessTable
		notifier   *fixtures.RecordingNotifier
		enforcer   *usecase.Enforcer
		controller *usecase.Controller
		now        time.Time
		ctx        context.Context
	)

	newEnforcer := func(cfg usecase.EnforcerConfig) *usecase.Enforcer {
		return usecase.NewEnforcer(
			cfg,
			store,
			policy.NewFileProfileLoader(filepath.Join(tmpDir, "profiles")),
			fixtures.FixedIdle(0),
			procs,
			notifier,
			nil,
			nil,
			zap.NewNop(),
		)
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "flowlock-integration-*")
		Expect(err).NotTo(HaveOccurred())
		Expect(fixtures.WriteProfile(filepath.Join(tmpDir, "profiles"), fixtures.FocusProfile())).To(Succeed())

		store = infra.NewFileStateStore(tmpDir)
		procs = fixtures.NewFakeProcessTable()
		notifier = &fixtures.RecordingNotifier{}
		enforcer = newEnforcer(usecase.DefaultEnforcerConfig())
		controller = usecase.NewController(store, nil, zap.NewNop())
		now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
		ctx = context.Background()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Context("when the lock is off", func() {
		It("should neither scan nor score", func() {
			pid := procs.Spawn("youtube-player", "youtube-player --fullscreen")

			for i := 0; i < 3; i++ {
				res := enforcer.RunCycle(ctx, now)
				Expect(res.Branch).To(Equal(usecase.BranchDisabled))
			}

			Expect(procs.IsRunning(pid)).To(BeTrue())
			Expect(filepath.Join(tmpDir, infra.StateFileName)).NotTo(BeAnExistingFile())
		})
	})

	Context("when the lock is on", func() {
		BeforeEach(func() {
			_, err := controller.SetLock(true)
			Expect(err).NotTo(HaveOccurred())
			_, err = controller.SetProfile(ctx, "focus")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should kill a blacklisted process and persist one penalty", func() {
			pid := procs.Spawn("youtube-player", "youtube-player --fullscreen")

			res := enforcer.RunCycle(ctx, now)

			Expect(res.Branch).To(Equal(usecase.BranchViolation))
			Expect(res.Sleep).To(Equal(time.Second))
			Expect(procs.Killed()).To(ConsistOf(pid))
			Expect(notifier.Bodies()).To(ConsistOf("Blocked: youtube-player"))

			st, err := store.Read()
			Expect(err).NotTo(HaveOccurred())
			Expect(st.DailyScore).To(BeNumerically("~", -10, 1e-9))
			Expect(st.StreakSeconds).To(BeZero())
		})

		It("should leave whitelisted processes alone and reward the tick", func() {
			pid := procs.Spawn("code", "code --folder /srv/youtube-player")

			res := enforcer.RunCycle(ctx, now)

			Expect(res.Branch).To(Equal(usecase.BranchReward))
			Expect(procs.IsRunning(pid)).To(BeTrue())

			st, err := store.Read()
			Expect(err).NotTo(HaveOccurred())
			Expect(st.DailyScore).To(BeNumerically("~", 0.25, 1e-9))
			Expect(st.TotalXP).To(BeNumerically("~", 0.25, 1e-9))
			Expect(st.LastScoreDate).To(Equal("2026-03-01"))
		})

		It("should reset yesterday's score before applying today's delta", func() {
			enforcer.RunCycle(ctx, now)
			enforcer.RunCycle(ctx, now.Add(24*time.Hour))

			st, err := store.Read()
			Expect(err).NotTo(HaveOccurred())
			Expect(st.DailyScore).To(BeNumerically("~", 0.25, 1e-9))
			Expect(st.TotalXP).To(BeNumerically("~", 0.5, 1e-9))
			Expect(st.LastScoreDate).To(Equal("2026-03-02"))
		})

		It("should treat an undefined profile as a no-op", func() {
			_, err := controller.SetProfile(ctx, "nonexistent")
			Expect(err).NotTo(HaveOccurred())
			pid := procs.Spawn("steam", "steam")

			res := enforcer.RunCycle(ctx, now)

			Expect(res.Branch).To(Equal(usecase.BranchReward))
			Expect(procs.IsRunning(pid)).To(BeTrue())
		})
	})

	Context("when running as a daemon", func() {
		var (
			cancel context.CancelFunc
			done   chan error
		)

		BeforeEach(func() {
			// Long sleeps so only a state change can trigger the next cycle.
			cfg := usecase.DefaultEnforcerConfig()
			cfg.CheckInterval = time.Hour
			cfg.ViolationBackoff = time.Hour
			enforcer = newEnforcer(cfg)

			stateWatcher, err := infra.NewStateWatcher(store.Path(), zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			go func() { _ = stateWatcher.Run(runCtx) }()

			watcher := daemon.NewWatcher(daemon.DefaultWatcherConfig(), enforcer, store,
				stateWatcher.Changes(), infra.NewInstanceLock(tmpDir), nil, "", zap.NewNop())
			done = make(chan error, 1)
			go func() { done <- watcher.Run(runCtx) }()

			Eventually(func() bool {
				_, _, ok := enforcer.LastSeen()
				return ok
			}).Should(BeTrue())
		})

		AfterEach(func() {
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("should wake and enforce as soon as the lock is turned on", func() {
			pid := procs.Spawn("steam", "steam -silent")
			Consistently(procs.Killed, 200*time.Millisecond).Should(BeEmpty())

			_, err := controller.SetProfile(ctx, "focus")
			Expect(err).NotTo(HaveOccurred())
			_, err = controller.SetLock(true)
			Expect(err).NotTo(HaveOccurred())

			Eventually(procs.Killed, 5*time.Second).Should(ContainElement(pid))
		})

		It("should refuse a second daemon on the same data directory", func() {
			second := daemon.NewWatcher(daemon.DefaultWatcherConfig(), enforcer, store,
				nil, infra.NewInstanceLock(tmpDir), nil, "", zap.NewNop())

			Expect(second.Run(context.Background())).To(MatchError(daemon.ErrAlreadyRunning))
		})
	})
})

var _ = Describe("Legacy state records", func() {
	It("should read a record written by the control script", func() {
		tmpDir := GinkgoT().TempDir()
		legacy := `{"lock_enabled": true, "current_profile": "coding", "daily_score": 12.5, "last_update": 1700000000}`
		Expect(os.WriteFile(filepath.Join(tmpDir, infra.StateFileName), []byte(legacy), 0600)).To(Succeed())

		store := infra.NewFileStateStore(tmpDir)
		st, err := store.Read()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.LockEnabled).To(BeTrue())
		Expect(st.CurrentProfile).To(Equal("coding"))
		Expect(st.SchemaVersion).To(Equal(domain.CurrentSchemaVersion))

		updated, err := store.Update(func(s *domain.PolicyState) error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Revision).To(Equal(int64(1)))
	})
})
