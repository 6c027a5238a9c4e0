package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// ItemList is the main timeline view: one row per rendered item.
type ItemList struct {
	*tview.Table
	count      int
	selectedFn func() (int, int)
}

// NewItemList creates a new timeline item table.
func NewItemList() *ItemList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)

	il := &ItemList{Table: table}
	il.selectedFn = table.GetSelection
	return il
}

// Update refreshes the list with rendered items and moves the selection to
// the timeline's cursor.
func (il *ItemList) Update(title string, items []string, index int) {
	il.count = len(items)
	il.Clear()
	il.SetTitle(fmt.Sprintf(" %s (%d) ", title, len(items)))

	for i, text := range items {
		il.SetCell(i, 0, tview.NewTableCell(" "+tview.Escape(text)).SetExpansion(1))
	}
	if index >= 0 && index < len(items) {
		il.Select(index, 0)
	}
}

// SelectedIndex returns the selected row, or -1 when the list is empty.
func (il *ItemList) SelectedIndex() int {
	row, _ := il.selectedFn()
	if row < 0 || row >= il.count {
		return -1
	}
	return row
}
