package cli

import (
	"fmt"
	"strconv"

	"quizlive/internal/domain"
)

// demoQuestionSets builds multiplication question sets for the built-in
// levels; swap the loader with the Postgres-backed one to serve teacher
// authored content.
func demoQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"LEVEL 1": multiplicationSet("LEVEL 1", 2, 3),
		"LEVEL 2": multiplicationSet("LEVEL 2", 6, 7),
		"LEVEL 3": multiplicationSet("LEVEL 3", 8, 9),
	}
}

// multiplicationSet generates ten questions over two tables: four-option
// multiple choice for the first table, free-entry for the second.
func multiplicationSet(level string, tableA, tableB int) domain.QuestionSet {
	var questions []domain.Question
	for i := 2; i <= 6; i++ {
		product := tableA * i
		questions = append(questions, domain.Question{
			ID:       fmt.Sprintf("%s-mc-%dx%d", level, tableA, i),
			Question: fmt.Sprintf("What is %d × %d?", tableA, i),
			Options: []string{
				strconv.Itoa(product - tableA),
				strconv.Itoa(product),
				strconv.Itoa(product + tableA),
				strconv.Itoa(product + 1),
			},
			Correct: 1,
			Answer:  strconv.Itoa(product),
			Type:    domain.MultipleChoice,
		})
	}
	for i := 2; i <= 6; i++ {
		product := tableB * i
		questions = append(questions, domain.Question{
			ID:       fmt.Sprintf("%s-sa-%dx%d", level, tableB, i),
			Question: fmt.Sprintf("Type the answer: %d × %d", tableB, i),
			Options:  []string{strconv.Itoa(product)},
			Correct:  0,
			Answer:   strconv.Itoa(product),
			Type:     domain.SingleAnswer,
		})
	}
	return domain.QuestionSet{Level: level, Questions: questions}
}
