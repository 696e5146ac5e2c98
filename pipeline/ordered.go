package pipeline

type indexedResult struct {
	index  int
	result ImageResult
}

// orderedReporter hands results to emit in index order. Results arriving
// ahead of a slower earlier page are parked until the gap closes.
type orderedReporter struct {
	resultChan chan indexedResult
	done       chan struct{}
	emit       func(int, ImageResult)
}

func newOrderedReporter(total int, emit func(int, ImageResult)) *orderedReporter {
	r := &orderedReporter{
		resultChan: make(chan indexedResult, total),
		done:       make(chan struct{}),
		emit:       emit,
	}
	go r.run()
	return r
}

func (r *orderedReporter) run() {
	resultsBuffer := make(map[int]ImageResult)
	nextIndex := 0

	for res := range r.resultChan {
		resultsBuffer[res.index] = res.result

		for {
			result, ok := resultsBuffer[nextIndex]
			if !ok {
				break
			}
			r.emit(nextIndex, result)
			delete(resultsBuffer, nextIndex)
			nextIndex++
		}
	}
	close(r.done)
}

func (r *orderedReporter) add(index int, res ImageResult) {
	r.resultChan <- indexedResult{index: index, result: res}
}

// close waits until every contiguous result has been emitted.
func (r *orderedReporter) close() {
	close(r.resultChan)
	<-r.done
}
