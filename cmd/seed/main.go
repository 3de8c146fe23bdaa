// Command seed populates a disk-resident tree with realistic records for
// load-testing, following vchandela-ddia/lsm-store's use of go-faker for
// record generation. Values are stored through the SnappyBytes codec
// (§4.1's optional fourth encoding) so this is also the one place in the
// repository that exercises github.com/golang/snappy directly.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-faker/faker/v4"

	"btreedisk/btree"
	"btreedisk/codec"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	treePath := fs.String("tree", "seed.tree", "path to the tree file")
	dataPath := fs.String("data", "seed.data", "path to the data file")
	degree := fs.Int("degree", 32, "minimum degree of the tree (an existing tree must be opened with the degree it was created with)")
	records := fs.Int("records", 1000, "number of records to seed")
	reset := fs.Bool("reset", false, "erase tree/data files before seeding")
	fs.Parse(os.Args[1:])

	logger := log.New(os.Stderr, "seed: ", log.LstdFlags)

	if *reset {
		must(removeIfExists(*treePath))
		must(removeIfExists(*dataPath))
	}

	tr, err := btree.Open[int64, []byte](*treePath, *dataPath, *degree, codec.Int64{}, codec.SnappyBytes{},
		func(a, b int64) bool { return a < b }, btree.Options{Logger: logger})
	must(err)
	defer tr.Close()

	for i := 0; i < *records; i++ {
		record := fakeRecord()
		inserted, err := tr.Insert(int64(i), record)
		must(err)
		if !inserted {
			log.Fatalf("seed: key %d unexpectedly already present", i)
		}
		if (i+1)%1000 == 0 {
			logger.Printf("seeded %d/%d records", i+1, *records)
		}
	}

	must(tr.CheckTree())
	logger.Printf("seeded %d records into %s/%s, invariants OK", *records, *treePath, *dataPath)
}

func removeIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Remove(path)
}

// fakeRecord builds a realistic flat record (name, email, UUID, a free-text
// note) and serializes it as a compact line the snappy codec then compresses
// before it reaches the data file.
func fakeRecord() []byte {
	return []byte(fmt.Sprintf("%s\t%s\t%s\t%s",
		faker.Name(),
		faker.Email(),
		faker.UUIDHyphenated(),
		faker.Sentence(),
	))
}
