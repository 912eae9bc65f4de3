// Package report builds the in-memory course graph from the work-tree store
// and derives everything the user-facing commands show or write: grading
// status, grading files and merged-submission HTML. All of it is pure data
// transformation over persisted state.
package report

import (
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/mdlgrade/internal/models"
	"github.com/noah-isme/mdlgrade/internal/store"
)

// Course is the aggregation root. It exclusively owns its users, groups and
// assignments; groups are fully derived from the user set and recomputed
// whenever the users are (re)assigned.
type Course struct {
	models.Course

	Users       map[int]*User
	Groups      map[int]*Group
	Assignments map[int]*Assignment
}

// User is one course participant with resolved group references. The group
// objects are owned by the course and shared between members.
type User struct {
	models.User

	Groups map[int]*Group
}

// Group is derived state: it exists iff at least one user references it, and
// its member list is assembled by folding every user's group memberships.
type Group struct {
	ID      int
	Name    string
	Members []*User
}

// Assignment wraps the persisted assignment with its course back-reference
// and the valid submissions and grades read from the store.
type Assignment struct {
	models.Assignment

	Course      *Course
	Submissions map[int]*Submission
	Grades      map[int]models.Grade // keyed by user id
}

// Submission wraps one valid submission with its assignment back-reference.
type Submission struct {
	models.Submission

	Assignment *Assignment
}

// BuildCourse assembles the full graph of one course from the store. Missing
// submission or grade documents mean "nothing synced yet" and yield empty
// maps; corrupt documents propagate.
func BuildCourse(tree *store.WorkTree, course models.Course) (*Course, error) {
	c := &Course{
		Course:      course,
		Assignments: make(map[int]*Assignment),
	}

	users, err := tree.Users(course.ID).Items()
	if err != nil {
		return nil, fmt.Errorf("course %d users: %w", course.ID, err)
	}
	c.AssignUsers(users)

	assignments, err := tree.Assignments().Items()
	if err != nil {
		return nil, fmt.Errorf("assignments: %w", err)
	}

	for id, record := range assignments {
		if record.CourseID != course.ID {
			continue
		}

		a := &Assignment{
			Assignment:  record,
			Course:      c,
			Submissions: make(map[int]*Submission),
			Grades:      make(map[int]models.Grade),
		}

		submissions, err := tree.Submissions().Get(id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("assignment %d submissions: %w", id, err)
		}
		for _, s := range submissions {
			if !s.HasContent() {
				continue
			}
			a.Submissions[s.ID] = &Submission{Submission: s, Assignment: a}
		}

		grades, err := tree.Grades().Get(id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("assignment %d grades: %w", id, err)
		}
		for _, g := range grades {
			a.Grades[g.UserID] = g
		}

		c.Assignments[id] = a
	}

	return c, nil
}

// BuildCourses assembles the graph of every selected course in the store.
// Results are ordered by course id.
func BuildCourses(tree *store.WorkTree, courseIDs []int) ([]*Course, error) {
	stored, err := tree.Courses().Items()
	if err != nil {
		return nil, err
	}

	selected := make(map[int]bool, len(courseIDs))
	for _, id := range courseIDs {
		selected[id] = true
	}

	var courses []*Course
	for id, record := range stored {
		if len(selected) > 0 && !selected[id] {
			continue
		}
		c, err := BuildCourse(tree, record)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

// AssignUsers replaces the course's user set and rederives the group map from
// scratch. Group member lists are sorted by user id so later "first member"
// lookups are deterministic.
func (c *Course) AssignUsers(users map[int]models.User) {
	c.Users = make(map[int]*User, len(users))
	c.Groups = make(map[int]*Group)

	ids := make([]int, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		record := users[id]
		u := &User{User: record, Groups: make(map[int]*Group)}
		for _, ref := range record.Groups {
			g, ok := c.Groups[ref.ID]
			if !ok {
				g = &Group{ID: ref.ID, Name: ref.Name}
				c.Groups[ref.ID] = g
			}
			g.Members = append(g.Members, u)
			u.Groups[g.ID] = g
		}
		c.Users[id] = u
	}
}
