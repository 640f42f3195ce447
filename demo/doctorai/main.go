// Command doctorai trains a next-visit code prediction
// model on a cohort of patient records.
//
// The cohort is a JSON file containing an array of
// patients, each an array of visits, each an array of
// clinical code indices. Without a -data flag, a synthetic
// cohort is generated.
package main

import (
	"flag"
	"math/rand"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/rip"
	"github.com/unixpickle/serializer"

	doctorai "github.com/bramamoorthy/Electronic-Health-Records-GRUs"
	"github.com/bramamoorthy/Electronic-Health-Records-GRUs/ehr"
)

func main() {
	var (
		dataPath  = flag.String("data", "", "path to JSON cohort (empty for synthetic data)")
		modelPath = flag.String("model", "model_out", "path to model checkpoint")
		vocab     = flag.Int("vocab", 4894, "number of clinical codes")
		embed     = flag.Int("embed", 200, "visit embedding size")
		hidden    = flag.Int("hidden", 200, "recurrent hidden size")
		keep      = flag.Float64("keep", 0.5, "dropout keep probability")
		batchSize = flag.Int("batch", 100, "SGD batch size")
		epochs    = flag.Int("epochs", 10, "number of passes over the training set")
		lr        = flag.Float64("lr", 0.01, "learning rate")
		rho       = flag.Float64("rho", 0.9, "Adadelta decay rate")
		clip      = flag.Float64("clip", 5, "gradient norm clipping threshold")
		l2        = flag.Float64("l2", 0.001, "output weight penalty coefficient")
		validFrac = flag.Float64("valid", 0.1, "validation fraction")
		testFrac  = flag.Float64("test", 0.1, "test fraction")
		logEvery  = flag.Int("logevery", 10, "iterations between validation logs")
		synthSize = flag.Int("synth", 2000, "synthetic cohort size")
	)
	flag.Parse()

	log := logrus.New()
	creator := anyvec32.CurrentCreator()

	var records []ehr.Record
	if *dataPath != "" {
		var err error
		records, err = ehr.LoadRecords(*dataPath)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		log.WithField("patients", *synthSize).Info("generating synthetic cohort")
		records = ehr.Synthesize(rand.New(rand.NewSource(1337)), *synthSize, *vocab)
	}

	list := &ehr.SortList{
		SampleList: &ehr.SampleList{C: creator, Vocab: *vocab, Records: records},
		BatchSize:  *batchSize,
	}
	test, rest := anysgd.HashSplit(list, *testFrac)
	valid, train := anysgd.HashSplit(rest.(anysgd.Hasher), *validFrac)
	log.WithFields(logrus.Fields{
		"train": train.Len(),
		"valid": valid.Len(),
		"test":  test.Len(),
	}).Info("split cohort")

	var model *doctorai.Model
	if _, err := os.Stat(*modelPath); err == nil {
		if err := serializer.LoadAny(*modelPath, &model); err != nil {
			log.Fatal(err)
		}
		log.WithField("path", *modelPath).Info("loaded checkpoint")
	} else {
		model = doctorai.NewModel(creator, *vocab, *embed, *hidden)
		model.Dropout.KeepProb = *keep
	}

	t := &doctorai.Trainer{
		Model:  model,
		Cost:   doctorai.MultiLabelCE{},
		Params: model.Parameters(),
		L2:     *l2,
	}

	done := make(chan struct{})
	var doneOnce sync.Once
	stop := func() {
		doneOnce.Do(func() { close(done) })
	}
	go func() {
		<-rip.NewRIP().Chan()
		stop()
	}()

	batchesPerEpoch := (train.Len() + *batchSize - 1) / *batchSize
	maxBatches := batchesPerEpoch * *epochs

	var iterNum int
	s := &anysgd.SGD{
		Fetcher:    t,
		Gradienter: t,
		Transformer: doctorai.Pipeline{
			&doctorai.ClipNorm{Max: *clip},
			&doctorai.Adadelta{DecayRate: *rho},
		},
		Samples:   train,
		Rater:     anysgd.ConstRater(*lr),
		BatchSize: *batchSize,
		StatusFunc: func(b anysgd.Batch) {
			entry := log.WithFields(logrus.Fields{
				"iter":  iterNum,
				"epoch": iterNum / batchesPerEpoch,
				"cost":  t.LastCost,
			})
			if iterNum%*logEvery == 0 && valid.Len() > 0 {
				vc, err := t.EvalCost(valid)
				if err != nil {
					log.Fatal(err)
				}
				entry = entry.WithField("validation", vc)
			}
			entry.Info("training")
			iterNum++
			if iterNum >= maxBatches {
				stop()
			}
		},
	}

	log.Info("press ctrl+c once to stop training")
	s.Run(done)

	if err := serializer.SaveAny(*modelPath, model); err != nil {
		log.Fatal(err)
	}
	log.WithField("path", *modelPath).Info("saved model")

	if test.Len() > 0 {
		tc, err := t.EvalCost(test)
		if err != nil {
			log.Fatal(err)
		}
		lastStep, err := t.EvalLastStep(test)
		if err != nil {
			log.Fatal(err)
		}
		log.WithFields(logrus.Fields{
			"cost":     tc,
			"lastStep": lastStep,
		}).Info("test set")
	}
}
