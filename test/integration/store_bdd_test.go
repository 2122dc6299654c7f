//go:build integration

package integration

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/infra"
	"github.com/sudo-0-AM/ArcheTYPE/internal/policy"
	"github.com/sudo-0-AM/ArcheTYPE/internal/usecase"
	"github.com/sudo-0-AM/ArcheTYPE/test/fixtures"
)

type storeFactory func(dir string) domain.StateStore

func fileStore(dir string) domain.StateStore {
	return infra.NewFileStateStore(dir)
}

func encryptedStore(dir string) domain.StateStore {
	key, err := infra.EnsureKey(infra.NewFileKeyProvider(dir))
	Expect(err).NotTo(HaveOccurred())
	store, err := infra.NewEncryptedStateStore(dir, key)
	Expect(err).NotTo(HaveOccurred())
	return store
}

var _ = DescribeTable("Control writes racing the loop",
	func(open storeFactory) {
		dir := GinkgoT().TempDir()
		Expect(fixtures.WriteProfile(dir+"/profiles", fixtures.FocusProfile())).To(Succeed())

		// Separate store handles stand in for the CLI and daemon processes.
		loopStore := open(dir)
		defer loopStore.Close()
		controlStore := open(dir)
		defer controlStore.Close()

		controller := usecase.NewController(controlStore, nil, zap.NewNop())
		_, err := controller.SetProfile(context.Background(), "focus")
		Expect(err).NotTo(HaveOccurred())
		_, err = controller.SetLock(true)
		Expect(err).NotTo(HaveOccurred())

		enforcer := usecase.NewEnforcer(usecase.DefaultEnforcerConfig(), loopStore,
			policy.NewFileProfileLoader(dir+"/profiles"), fixtures.FixedIdle(0),
			fixtures.NewFakeProcessTable(), &fixtures.RecordingNotifier{}, nil, nil, zap.NewNop())

		const cycles = 40
		const controlWrites = 40
		now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := 0; i < cycles; i++ {
				res := enforcer.RunCycle(context.Background(), now)
				Expect(res.Branch).To(Equal(usecase.BranchReward))
			}
		}()
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := 0; i < controlWrites; i++ {
				_, err := controller.SetLock(true)
				Expect(err).NotTo(HaveOccurred())
			}
		}()
		wg.Wait()

		st, err := controlStore.Read()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.LockEnabled).To(BeTrue())
		Expect(st.CurrentProfile).To(Equal("focus"))
		// 40 ticks of 5 * 3/60 each; the streak stays under five minutes.
		Expect(st.TotalXP).To(BeNumerically("~", cycles*0.25, 1e-9))
		Expect(st.Revision).To(Equal(int64(2 + cycles + controlWrites)))
	},
	Entry("with the JSON file backend", storeFactory(fileStore)),
	Entry("with the encrypted backend", storeFactory(encryptedStore)),
)

var _ = DescribeTable("State survives a restart",
	func(open storeFactory) {
		dir := GinkgoT().TempDir()

		first := open(dir)
		controller := usecase.NewController(first, nil, zap.NewNop())
		_, err := controller.SetLock(true)
		Expect(err).NotTo(HaveOccurred())
		_, err = controller.SetProfile(context.Background(), "study")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Close()).To(Succeed())

		second := open(dir)
		defer second.Close()
		st, err := second.Read()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.LockEnabled).To(BeTrue())
		Expect(st.CurrentProfile).To(Equal("study"))
		Expect(st.Revision).To(Equal(int64(2)))
	},
	Entry("with the JSON file backend", storeFactory(fileStore)),
	Entry("with the encrypted backend", storeFactory(encryptedStore)),
)
