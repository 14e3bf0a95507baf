package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/refmatch/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("Then it starts empty", func() {
			So(d, ShouldNotBeNil)
			So(d.Size(ctx), ShouldEqual, 0)
		})

		Convey("When recording an outcome id", func() {
			seen, err := d.SeenAndRecord(ctx, "a-1:completed")

			Convey("Then it is new the first time", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeFalse)
				So(d.Size(ctx), ShouldEqual, 1)
			})

			Convey("And the same id is replayed", func() {
				again, err := d.SeenAndRecord(ctx, "a-1:completed")

				Convey("Then it is reported as seen", func() {
					So(err, ShouldBeNil)
					So(again, ShouldBeTrue)
					So(d.Size(ctx), ShouldEqual, 1)
				})
			})

			Convey("And the id is unrecorded", func() {
				So(d.Unrecord(ctx, "a-1:completed"), ShouldBeNil)

				Convey("Then it can be recorded again", func() {
					seen, err := d.SeenAndRecord(ctx, "a-1:completed")
					So(err, ShouldBeNil)
					So(seen, ShouldBeFalse)
				})
			})
		})

		Convey("When unrecording an unknown id", func() {
			So(d.Unrecord(ctx, "missing"), ShouldBeNil)

			Convey("Then the size is unchanged", func() {
				So(d.Size(ctx), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded deduper at capacity", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			_, _ = d.SeenAndRecord(ctx, fmt.Sprintf("id-%d", i))
		}

		Convey("When a new id arrives", func() {
			seen, err := d.SeenAndRecord(ctx, "id-4")
			So(err, ShouldBeNil)
			So(seen, ShouldBeFalse)

			Convey("Then the oldest id is evicted", func() {
				So(d.Size(ctx), ShouldEqual, 3)
				oldest, _ := d.SeenAndRecord(ctx, "id-1")
				So(oldest, ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

		Convey("When many ids are recorded", func() {
			for i := 0; i < 1000; i++ {
				_, _ = d.SeenAndRecord(ctx, fmt.Sprintf("id-%d", i))
			}

			Convey("Then none are evicted", func() {
				So(d.Size(ctx), ShouldEqual, 1000)
				seen, _ := d.SeenAndRecord(ctx, "id-0")
				So(seen, ShouldBeTrue)
			})
		})
	})

	Convey("Given concurrent replays of one outcome", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				seen, err := d.SeenAndRecord(ctx, "a-9:no_show")
				if err == nil && !seen {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one caller wins", func() {
			So(fresh, ShouldEqual, 1)
			So(d.Size(ctx), ShouldEqual, 1)
		})
	})
}
