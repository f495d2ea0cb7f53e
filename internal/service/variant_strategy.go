package service

import (
	"encoding/binary"
	"math/rand"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/noah-isme/gema-grader/internal/models"
)

// VariantStrategy maps an exam slot to the identity the external checker knows it by.
type VariantStrategy interface {
	Map(seed int64, groupTitle string, taskID, variantID int) (title string, externalTask, externalVariant int)
}

// SeededPermutation derives the exam identity from the group's seed.
// The same seed always yields the same mapping and distinct internal tasks of one
// variant land on distinct external tasks while the final set is large enough.
type SeededPermutation struct {
	finalTasks    map[string][]int
	titles        []string
	finalVariants int
}

// NewSeededPermutation builds the strategy over the configured final task sets.
func NewSeededPermutation(finalTasks map[string][]int, finalVariants int) *SeededPermutation {
	titles := make([]string, 0, len(finalTasks))
	for title, tasks := range finalTasks {
		if len(tasks) > 0 {
			titles = append(titles, title)
		}
	}
	sort.Strings(titles)
	if finalVariants < 1 {
		finalVariants = 1
	}
	return &SeededPermutation{finalTasks: finalTasks, titles: titles, finalVariants: finalVariants}
}

func (p *SeededPermutation) Map(seed int64, groupTitle string, taskID, variantID int) (string, int, int) {
	if len(p.titles) == 0 {
		return groupTitle, taskID, variantID
	}

	title := p.titles[mix(seed, variantID)%uint64(len(p.titles))]

	tasks := append([]int(nil), p.finalTasks[title]...)
	shuffler := rand.New(rand.NewSource(int64(mix(seed, variantID, len(tasks)))))
	shuffler.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	index := taskID % len(tasks)
	if index < 0 {
		index += len(tasks)
	}

	variant := int(mix(seed, variantID, taskID)%uint64(p.finalVariants)) + 1
	return title, tasks[index], variant
}

func mix(seed int64, values ...int) uint64 {
	buf := make([]byte, 8*(len(values)+1))
	binary.LittleEndian.PutUint64(buf, uint64(seed))
	for i, value := range values {
		binary.LittleEndian.PutUint64(buf[8*(i+1):], uint64(int64(value)))
	}
	return xxhash.Sum64(buf)
}

// identityTask is the mapping used outside of exams.
func identityTask(group models.Group, task models.Task, variantID int, active bool) models.ExternalTask {
	return models.ExternalTask{
		GroupID:    group.ID,
		GroupTitle: group.Title,
		TaskID:     task.ID,
		VariantID:  variantID,
		Active:     active,
	}
}
