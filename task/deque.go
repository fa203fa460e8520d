package task

import (
	"github.com/google/uuid"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// deque 是单个 Agent 的本地任务双端队列。
// 所有者从队首取任务，窃取者从队尾取。非并发安全，由 Queue 持锁访问。
type deque struct {
	items []*types.Task
}

func (d *deque) pushFront(t *types.Task) {
	d.items = append([]*types.Task{t}, d.items...)
}

func (d *deque) pushBack(t *types.Task) {
	d.items = append(d.items, t)
}

func (d *deque) popFront() *types.Task {
	if len(d.items) == 0 {
		return nil
	}
	t := d.items[0]
	d.items = d.items[1:]
	return t
}

// popBack 从队尾取任务，仅在长度大于 1 时成功。
// 保留最后一个任务给所有者，避免窃取者把所有者饿死。
func (d *deque) popBack() *types.Task {
	if len(d.items) <= 1 {
		return nil
	}
	t := d.items[len(d.items)-1]
	d.items = d.items[:len(d.items)-1]
	return t
}

func (d *deque) len() int {
	return len(d.items)
}

func (d *deque) removeByID(id uuid.UUID) *types.Task {
	for i, t := range d.items {
		if t.ID == id {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return t
		}
	}
	return nil
}
